//go:build !unix

package main

import "context"

func (d *device) handleSignals(ctx context.Context) {}
