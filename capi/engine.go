package capi

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-embed/engine"
	"github.com/wippyai/wasm-embed/resource"
	"github.com/wippyai/wasm-embed/vec"
)

// EngineNew creates an engine with the default configuration.
func EngineNew() (Engine, error) {
	e, err := engine.NewEngine()
	if err != nil {
		return 0, err
	}
	return Engine(insert(engines, e)), nil
}

// EngineNewWithConfig consumes c and creates an engine from it. The config
// handle is invalid afterwards whether or not construction succeeds.
func EngineNewWithConfig(c Config) (Engine, error) {
	cfg, err := configs.Remove(resource.Handle(c))
	if err != nil {
		return 0, err
	}
	e, err := engine.NewEngineWithConfig(cfg)
	if err != nil {
		return 0, err
	}
	return Engine(insert(engines, e)), nil
}

// EngineDelete releases e. It fails while stores created from it are alive.
func EngineDelete(e Engine) error {
	eng, err := engines.Get(resource.Handle(e))
	if err != nil {
		staleHandle("engine delete", err)
		return err
	}
	if err := eng.Close(background()); err != nil {
		return err
	}
	_, err = engines.Remove(resource.Handle(e))
	return err
}

// StoreNew creates a store owned by e.
func StoreNew(e Engine) (Store, error) {
	eng, err := engines.Get(resource.Handle(e))
	if err != nil {
		return 0, err
	}
	s, err := engine.NewStore(background(), eng)
	if err != nil {
		return 0, err
	}
	return Store(insert(stores, s)), nil
}

// StoreDelete releases s. It fails while modules or instances created in it
// are alive.
func StoreDelete(s Store) error {
	st, err := stores.Get(resource.Handle(s))
	if err != nil {
		staleHandle("store delete", err)
		return err
	}
	if err := st.Close(background()); err != nil {
		return err
	}
	_, err = stores.Remove(resource.Handle(s))
	return err
}

// Wat2Wasm converts the text in wat to binary. On success ret receives the
// binary. On failure it returns false and, when errorMessage is non-nil,
// fills it with a "line:col: message" diagnostic. ret and errorMessage must
// be unowned out vectors.
func Wat2Wasm(e Engine, wat *vec.ByteVec, ret *vec.ByteVec, errorMessage *vec.ByteVec) bool {
	fail := func(err error) bool {
		if errorMessage != nil {
			if ierr := vec.Into(errorMessage, []byte(err.Error())); ierr != nil {
				engine.Logger().Warn("wat2wasm: diagnostic not delivered",
					zap.NamedError("diagnostic", err), zap.Error(ierr))
			}
		}
		return false
	}

	eng, err := engines.Get(resource.Handle(e))
	if err != nil {
		return fail(err)
	}
	bin, err := engine.Wat2Wasm(eng, vec.String(wat))
	if err != nil {
		return fail(err)
	}
	if err := vec.Into(ret, bin); err != nil {
		return fail(err)
	}
	return true
}
