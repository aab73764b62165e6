package models

import "errors"

// ErrNotFound is returned by stores when a rule or record does not exist
var ErrNotFound = errors.New("not found")
