package toolchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const linuxHost = "x86_64-unknown-linux-gnu"

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRustupName(t *testing.T) {
	values := []struct {
		spec Spec
		host string

		expected string
	}{
		{NightlySpec(date(2018, 7, 7)), linuxHost, "bisector-nightly-2018-07-07-x86_64-unknown-linux-gnu"},
		{CISpec("6a1c0637ce44", false), linuxHost, "bisector-ci-6a1c0637ce44-x86_64-unknown-linux-gnu"},
		{CISpec("6a1c0637ce44", true), linuxHost, "bisector-ci-alt-6a1c0637ce44-x86_64-unknown-linux-gnu"},
		{NightlySpec(date(2022, 2, 1)), "aarch64-apple-darwin", "bisector-nightly-2022-02-01-aarch64-apple-darwin"},
	}

	for _, v := range values {
		tc := New(v.spec, v.host, []string{v.host})
		assert.Equal(t, v.expected, tc.RustupName())
	}
}

func TestSpecString(t *testing.T) {
	assert.Equal(t, "nightly-2018-07-07", NightlySpec(date(2018, 7, 7)).String())
	assert.Equal(t, "6a1c0637ce44", CISpec("6a1c0637ce44", false).String())
	assert.True(t, NightlySpec(date(2018, 7, 7)).IsNightly())
	assert.False(t, CISpec("6a1c0637ce44", false).IsNightly())
}

func TestNewDeduplicatesStdTargets(t *testing.T) {
	tc := New(NightlySpec(date(2018, 7, 7)), linuxHost, []string{linuxHost, "wasm32-unknown-unknown", linuxHost})
	assert.Equal(t, []string{linuxHost, "wasm32-unknown-unknown"}, tc.StdTargets)
}

func TestComponentURL(t *testing.T) {
	client := NewClient(nil)

	nightly := New(NightlySpec(date(2018, 7, 7)), linuxHost, []string{linuxHost})
	assert.Equal(t,
		"https://static.rust-lang.org/dist/2018-07-07/rustc-nightly-x86_64-unknown-linux-gnu.tar.gz",
		nightly.componentURL(client, component{"rustc", linuxHost}))
	assert.Equal(t,
		"https://static.rust-lang.org/dist/2018-07-07/rust-src-nightly.tar.gz",
		nightly.componentURL(client, component{"rust-src", ""}))

	ci := New(CISpec("6a1c0637ce44", false), linuxHost, []string{linuxHost})
	assert.Equal(t,
		"https://s3-us-west-1.amazonaws.com/rust-lang-ci2/rustc-builds/6a1c0637ce44/rustc-nightly-x86_64-unknown-linux-gnu.tar.gz",
		ci.componentURL(client, component{"rustc", linuxHost}))

	alt := New(CISpec("6a1c0637ce44", true), linuxHost, []string{linuxHost})
	assert.Equal(t,
		"https://s3-us-west-1.amazonaws.com/rust-lang-ci2/rustc-builds-alt/6a1c0637ce44/rustc-nightly-x86_64-unknown-linux-gnu.tar.gz",
		alt.componentURL(client, component{"rustc", linuxHost}))
}

func TestComponents(t *testing.T) {
	tc := New(NightlySpec(date(2018, 7, 7)), linuxHost, []string{linuxHost, "wasm32-unknown-unknown"})

	t.Run("default set", func(t *testing.T) {
		comps := tc.components(InstallConfig{})
		assert.ElementsMatch(t, []component{
			{"rustc", linuxHost},
			{"cargo", linuxHost},
			{"rust-std", linuxHost},
			{"rust-std", "wasm32-unknown-unknown"},
		}, comps)
	})

	t.Run("without cargo, with extras", func(t *testing.T) {
		comps := tc.components(InstallConfig{
			WithoutCargo: true,
			WithSource:   true,
			WithDev:      true,
			Components:   []string{"clippy"},
		})
		assert.ElementsMatch(t, []component{
			{"rustc", linuxHost},
			{"rust-std", linuxHost},
			{"rust-std", "wasm32-unknown-unknown"},
			{"rust-src", ""},
			{"rustc-dev", linuxHost},
			{"clippy", linuxHost},
		}, comps)
	})
}
