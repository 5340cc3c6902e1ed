package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "../../testdata/scenarios"

// goldenScenarios are also compared against testdata/golden.
var goldenScenarios = map[string]bool{
	"customer_company":     true,
	"left_join_parent":     true,
	"update_returning_old": true,
}

func TestDemoScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			var result *Result
			if goldenScenarios[s.Name] {
				result, err = RunWithGolden(t, s)
			} else {
				result, err = Run(s)
			}
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
