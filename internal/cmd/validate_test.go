package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probeflow/probeflow/internal/core"
)

func TestValidateCommand(t *testing.T) {
	t.Run("Suite", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "checkout.yaml", `
name: checkout
steps:
  - id: login
    name: login
    method: POST
    url: /auth/login
  - id: cart
    name: add to cart
    method: POST
    url: /cart
    dependencies:
      - dependsOnStepId: login
`)
		th.runCommand(t, CmdValidate(), cmdTest{
			args:        []string{"validate", path},
			expectedOut: []string{"Validation passed"},
		})
	})

	t.Run("SuiteNameFromFileName", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "orders.yaml", `
steps:
  - id: list
    name: list orders
    method: GET
    url: /orders
`)
		th.runCommand(t, CmdValidate(), cmdTest{
			args:        []string{"validate", path},
			expectedOut: []string{"Validation passed"},
		})
	})

	t.Run("Environment", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "staging.yaml", `
name: staging
baseUrl: https://staging.example.com
variables:
  - key: TOKEN
    value: abc123
`)
		th.runCommand(t, CmdValidate(), cmdTest{
			args:        []string{"validate", "--kind", "environment", path},
			expectedOut: []string{"Validation passed"},
		})
	})

	t.Run("Schedule", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "nightly.yaml", `
suiteName: checkout
cronExpr: "0 2 * * *"
active: true
`)
		th.runCommand(t, CmdValidate(), cmdTest{
			args:        []string{"validate", "--kind", "schedule", path},
			expectedOut: []string{"Validation passed"},
		})
	})

	t.Run("MultipleFiles", func(t *testing.T) {
		th := setupCommand(t)
		first := th.writeFile(t, "first.yaml", `
steps:
  - id: ping
    name: ping
    method: GET
    url: /ping
`)
		second := th.writeFile(t, "second.yaml", `
steps:
  - id: health
    name: health
    method: GET
    url: /health
`)
		th.runCommand(t, CmdValidate(), cmdTest{
			args:        []string{"validate", first, second},
			expectedOut: []string{first, second},
		})
	})
}

func TestValidateFile(t *testing.T) {
	t.Run("MissingStepName", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "broken.yaml", `
name: broken
steps:
  - id: login
    method: POST
    url: /auth/login
`)
		err := validateFile("suite", path)
		require.ErrorIs(t, err, core.ErrStepNameRequired)
	})

	t.Run("UnknownDependency", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "dangling.yaml", `
name: dangling
steps:
  - id: cart
    name: add to cart
    method: POST
    url: /cart
    dependencies:
      - dependsOnStepId: missing
`)
		err := validateFile("suite", path)
		require.ErrorIs(t, err, core.ErrUnknownDependency)
	})

	t.Run("DuplicateVariableKey", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "dupes.yaml", `
name: dupes
variables:
  - key: TOKEN
    value: one
  - key: TOKEN
    value: two
`)
		err := validateFile("environment", path)
		require.ErrorIs(t, err, core.ErrVariableKeyDuplicate)
	})

	t.Run("ScheduleWithoutSuite", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "orphan.yaml", `
cronExpr: "0 2 * * *"
`)
		err := validateFile("schedule", path)
		require.ErrorIs(t, err, core.ErrScheduleSuiteRequired)
	})

	t.Run("InvalidCronExpression", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "badcron.yaml", `
suiteName: checkout
cronExpr: not a cron
`)
		err := validateFile("schedule", path)
		require.ErrorIs(t, err, core.ErrCronExprInvalid)
	})

	t.Run("InvalidYAML", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "garbage.yaml", "steps: [\n")
		err := validateFile("suite", path)
		require.ErrorContains(t, err, "invalid YAML")
	})

	t.Run("UnknownKind", func(t *testing.T) {
		th := setupCommand(t)
		path := th.writeFile(t, "thing.yaml", "name: thing\n")
		err := validateFile("widget", path)
		require.ErrorContains(t, err, "unknown definition kind")
	})

	t.Run("MissingFile", func(t *testing.T) {
		setupCommand(t)
		err := validateFile("suite", "/nonexistent/suite.yaml")
		require.Error(t, err)
	})
}
