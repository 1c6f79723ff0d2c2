package cmd

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/EnzoPontoniDev/Alvl-Bot/alvlbot"
	"github.com/stretchr/testify/assert"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := alvlbot.Version
	originalCommitSHA := alvlbot.CommitSHA
	originalBuildTime := alvlbot.BuildTime

	t.Cleanup(
		func() {
			alvlbot.Version = originalVersion
			alvlbot.CommitSHA = originalCommitSHA
			alvlbot.BuildTime = originalBuildTime
		},
	)

	alvlbot.Version = "1.0.0"
	alvlbot.CommitSHA = "abc123"
	alvlbot.BuildTime = "2026-01-01T12:00:00Z"

	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	t.Cleanup(
		func() {
			os.Stdout = orig
		},
	)

	versionCmd.Run(nil, nil)

	_ = w.Close()

	out, _ := io.ReadAll(r)
	output := string(out)
	t.Logf("output: %s", output)
	expected := fmt.Sprintf(
		"version=%s commit=%s built: %s",
		alvlbot.Version,
		alvlbot.CommitSHA,
		alvlbot.BuildTime,
	)
	assert.Equal(t, expected, output)
}
