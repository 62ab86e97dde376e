package main

import "fmt"

// MigrateCmd runs a goose command against the embedded migrations.
type MigrateCmd struct {
	Command string   `arg:"" help:"goose command: up, up-by-one, up-to, down, down-to, redo, reset, status, version"`
	Args    []string `arg:"" optional:"" help:"command arguments (e.g. the target version)"`
}

func (c *MigrateCmd) Run(deps *Dependencies) error {
	if deps.DB == nil {
		return fmt.Errorf("no database connection")
	}
	return gooseRunFunc(deps.DB, c.Command, c.Args...)
}
