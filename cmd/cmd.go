package cmd

import (
	"context"
	"net/url"
)

func isContextCanceledError(err error) bool {
	if e, ok := err.(*url.Error); ok {
		return e.Err == context.Canceled
	}
	return err == context.Canceled
}
