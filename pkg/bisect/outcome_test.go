package bisect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

const iceStderr = "error: internal compiler error: compiler/rustc_middle/src/ty/mod.rs:1234"

func TestClassify(t *testing.T) {
	values := []struct {
		regress RegressOn
		success bool
		stderr  string

		expected Outcome
	}{
		// error: any failure regresses
		{RegressError, true, "", Baseline},
		{RegressError, false, "", Regressed},
		{RegressError, false, iceStderr, Regressed},

		// success: a passing build regresses (bisecting a fix)
		{RegressSuccess, true, "", Regressed},
		{RegressSuccess, false, "", Baseline},
		{RegressSuccess, false, iceStderr, Baseline},

		// ice: only an internal compiler error regresses
		{RegressIce, false, iceStderr, Regressed},
		{RegressIce, true, iceStderr, Regressed},
		{RegressIce, false, "error[E0308]: mismatched types", Baseline},
		{RegressIce, false, "thread 'rustc' has overflowed its stack", Regressed},

		// non-ice: the absence of an ICE regresses
		{RegressNonIce, false, iceStderr, Baseline},
		{RegressNonIce, false, "", Regressed},
		{RegressNonIce, true, "", Regressed},

		// non-error: only a clean rejection is baseline
		{RegressNonError, false, "", Baseline},
		{RegressNonError, true, "", Regressed},
		{RegressNonError, false, iceStderr, Regressed},
	}

	for _, v := range values {
		res := &toolchain.ProcessResult{Success: v.success, Stderr: v.stderr}
		assert.Equalf(t, v.expected, v.regress.Classify(res),
			"wrong outcome for regress=%s success=%t stderr=%q", v.regress, v.success, v.stderr)
	}
}

func TestParseRegressOn(t *testing.T) {
	for _, valid := range []string{"error", "success", "ice", "non-ice", "non-error"} {
		r, err := ParseRegressOn(valid)
		assert.NoError(t, err)
		assert.Equal(t, valid, string(r))
	}

	_, err := ParseRegressOn("sometimes")
	assert.Error(t, err)
}
