package main

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supervity/company-research/internal/storage"
)

func TestRenderMarkdown(t *testing.T) {
	style := renderStyle(&bytes.Buffer{}, "")
	require.Equal(t, "dark", style)

	out, err := renderMarkdown("# Vision\n\nAcme wants to reach **Mars**.\n", 80, style)
	require.NoError(t, err)
	assert.Contains(t, out, "Vision")
	assert.Contains(t, out, "Mars")
	assert.NotContains(t, out, "**")
}

func TestRenderStyle(t *testing.T) {
	assert.Equal(t, "light", renderStyle(&bytes.Buffer{}, "light"))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "dark", renderStyle(f, ""), "a regular file is not a terminal")
}

func TestShowCommand(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RESEARCH_DATABASE_URL", "")
	root := t.TempDir()
	files, err := storage.NewFileStore(root)
	require.NoError(t, err)
	key := storage.Key{Company: "Acme Corp", Language: "English", SectionID: "basic"}
	require.NoError(t, files.Write(context.Background(), key, "## Overview\n\nAcme builds rockets.\n"))

	t.Setenv("RESEARCH_OUTPUT_DIR", root)
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"show", "basic", "--company", "Acme Corp", "--language", "English", "--raw"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "## Overview\n\nAcme builds rockets.\n", stdout.String())

	stdout.Reset()
	rootCmd.SetArgs([]string{"show", "vision", "--company", "Acme Corp", "--language", "English", "--raw"})
	assert.Error(t, rootCmd.Execute())
}

func TestSectionsCommand(t *testing.T) {
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	t.Cleanup(func() { rootCmd.SetOut(nil) })
	rootCmd.SetArgs([]string{"sections"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, stdout.String(), "Basic Information")
	assert.Contains(t, stdout.String(), "Japanese")
}
