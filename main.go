package main

import "github.com/kraktus/cargo-bisect-rustc/cmd"

func main() {
	cmd.Execute()
}
