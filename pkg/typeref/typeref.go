// Package typeref derives a stable 32-bit descriptor for a Go type, used to
// tag compile options and artifacts so the pipeline can dispatch without
// runtime type switches.
package typeref

import (
	"hash/fnv"
	"reflect"
)

// TypeRef identifies a registered Go type by a hash of its fully qualified
// name plus its in-memory layout.
type TypeRef struct {
	Hash  uint32
	Name  string
	Size  uintptr
	Align uintptr
}

// Of derives a TypeRef from a sample value of the target type. Passing a nil
// interface panics; callers pass a zero value of the concrete type instead,
// e.g. typeref.Of(TextureOptions{}).
func Of(sample any) TypeRef {
	t := reflect.TypeOf(sample)
	name := qualifiedName(t)
	return TypeRef{
		Hash:  hashName(name),
		Name:  name,
		Size:  t.Size(),
		Align: uintptr(t.Align()),
	}
}

func qualifiedName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

func hashName(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// IsZero reports whether r is the unset TypeRef.
func (r TypeRef) IsZero() bool { return r.Hash == 0 && r.Name == "" }
