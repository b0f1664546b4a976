package utils

import "errors"

// ErrorRecordNotFound is the storage-agnostic "no such row" error. Model
// getters translate gorm.ErrRecordNotFound onto it so handlers can map it
// to 404 without importing the ORM.
var ErrorRecordNotFound = errors.New("record not found")
