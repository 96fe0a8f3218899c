package bisect

// Version of the tool, stamped into regression reports.
const Version = "0.6.0"

// Repository is where the tool itself lives, linked from reports.
const Repository = "https://github.com/kraktus/cargo-bisect-rustc"
