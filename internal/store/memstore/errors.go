package memstore

import "errors"

var (
	errForeignKey  = errors.New("memstore: foreign key violation")
	errCopiesCheck = errors.New("memstore: available copies out of range")
)
