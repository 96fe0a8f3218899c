/*
Package bisect finds the rustc build that introduced a regression by binary
searching over published build artifacts.

A bisection is described by an [Options] struct, most easily filled from the
command line or from a yaml job file via [OptionsFromConfig], and validated
into a [Config] with [NewConfig]. [Config.Run] then executes it: date-bounded
searches first narrow down the regressed nightly and afterwards descend into
that nightly's one-day commit window using per-commit CI artifacts, while
commit-bounded searches go straight to the CI artifacts.

Every probed toolchain is downloaded into the local rustup layout, exercised
against the project in Options.TestDir, classified as baseline or regressed,
and removed again. Classification is automatic by default, driven by the
configured [RegressOn] mode; with Options.Prompt the verdict is asked on the
terminal instead, and with Options.PromptPort it can be supplied over HTTP.
*/
package bisect
