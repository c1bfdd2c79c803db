package modules

import "errors"

var (
	ErrModuleFetch       = errors.New("modules: fetch module image")
	ErrModuleParse       = errors.New("modules: parse module image")
	ErrModuleInstantiate = errors.New("modules: instantiate module")
	ErrMissingExport     = errors.New("modules: missing export")
	ErrBridgeOrder       = errors.New("modules: bring-up step out of order")
	ErrAlreadyLoaded     = errors.New("modules: already loaded")
	ErrNotLoaded         = errors.New("modules: not loaded")
)
