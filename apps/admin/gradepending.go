package main

import "fmt"

type GradePendingCmd struct{}

func (c *GradePendingCmd) Run(deps *Dependencies) error {
	graded, err := deps.Attempts.GradePending(deps.Ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "%d attempt(s) graded\n", graded)
	return nil
}
