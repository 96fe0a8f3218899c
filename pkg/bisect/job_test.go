package bisect

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsFromConfig(t *testing.T) {
	yml := `
start: "2018-07-07"
end: "2018-07-30"
regress: "ice"
testDir: "../my_project"
timeout: 90
access: "github"
components:
  - clippy
args:
  - check
`

	opts, err := OptionsFromConfig(strings.NewReader(yml))
	assert.Nil(t, err, "OptionsFromConfig returned an error")

	assert.NotNil(t, opts.Start)
	assert.Equal(t, date(2018, 7, 7), opts.Start.Date)
	assert.NotNil(t, opts.End)
	assert.Equal(t, date(2018, 7, 30), opts.End.Date)
	assert.Equal(t, RegressIce, opts.Regress)
	assert.Equal(t, "../my_project", opts.TestDir)
	assert.Equal(t, 90*time.Second, opts.Timeout)
	assert.Equal(t, "github", opts.Access)
	assert.ElementsMatch(t, []string{"clippy"}, opts.Components)
	assert.ElementsMatch(t, []string{"check"}, opts.Args)
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	opts, err := OptionsFromConfig(strings.NewReader(`end: "2018-07-30"`))
	assert.Nil(t, err, "OptionsFromConfig returned an error")

	assert.Nil(t, opts.Start)
	assert.Equal(t, RegressError, opts.Regress, "regress should default to error")
	assert.Equal(t, ".", opts.TestDir, "testDir should default to the current directory")
	assert.Equal(t, "checkout", opts.Access, "access should default to checkout")
}

func TestOptionsFromConfigRejectsBadRegress(t *testing.T) {
	_, err := OptionsFromConfig(strings.NewReader(`regress: "sometimes"`))
	assert.Error(t, err)
}
