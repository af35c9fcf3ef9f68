package main

import (
	"context"

	"github.com/JohnDoe6345789/winejs/internal/host"
	"github.com/JohnDoe6345789/winejs/internal/ui/debugger"
)

func debug(ctx context.Context, h *host.Host, name string, data []byte) error {
	m, err := debugger.New(ctx, h, name, data)
	if err != nil {
		return err
	}
	return debugger.Run(m)
}
