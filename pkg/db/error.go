package db

import "fmt"

var (
	ErrKeyNotFound = fmt.Errorf("hummock: key not found")
	ErrReadOnly    = fmt.Errorf("hummock: read only")
	ErrClosed      = fmt.Errorf("hummock: database closed")
)
