package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrIdentity means the directory could not resolve the user.
	ErrIdentity = goerr.New("failed to resolve user identity")

	// ErrBackend means the retrieval backend call failed.
	ErrBackend = goerr.New("retrieval backend failed")
)
