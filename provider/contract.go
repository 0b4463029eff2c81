package provider

import (
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
)

// Contract identifies a service contract.
// Contracts are comparable and usable as map keys.
type Contract struct {
	name string
	typ  reflect.Type
	// id is unique per contract within the process; names are not, since
	// reflect type strings omit the import path.
	id string
}

var (
	typeIDs    sync.Map // reflect.Type -> string
	nextTypeID atomic.Uint64
)

// ContractOf returns the contract for type T. Providers registered under it
// must implement T (interfaces) or be of type T.
func ContractOf[T any]() Contract {
	t := reflect.TypeFor[T]()
	return Contract{name: t.String(), typ: t, id: typeID(t)}
}

func typeID(t reflect.Type) string {
	if id, ok := typeIDs.Load(t); ok {
		return id.(string)
	}
	id, _ := typeIDs.LoadOrStore(t, "t"+strconv.FormatUint(nextTypeID.Add(1), 10))
	return id.(string)
}

// NamedContract returns a contract that is identified only by name and
// accepts providers of any type.
func NamedContract(name string) Contract {
	return Contract{name: name, id: "n" + strconv.Itoa(len(name)) + ":" + name}
}

// String returns the contract name used in configuration, logs and the admin API.
func (c Contract) String() string {
	return c.name
}

// Type returns the Go type of the contract, or nil for named contracts.
func (c Contract) Type() reflect.Type {
	return c.typ
}

// key returns the identity used in cache keys and hashes.
func (c Contract) key() string {
	return c.id
}

// IsZero reports whether c is the zero Contract.
func (c Contract) IsZero() bool {
	return c.name == "" && c.typ == nil
}

// accepts reports whether p can serve the contract.
func (c Contract) accepts(p any) bool {
	if c.typ == nil {
		return true
	}
	pt := reflect.TypeOf(p)
	if c.typ.Kind() == reflect.Interface {
		return pt.Implements(c.typ)
	}
	return pt.AssignableTo(c.typ)
}

// isNil reports whether p is nil or a typed nil.
func isNil(p any) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
