// Package kernel is the static registry of user-supplied compute kernels,
// the opaque units of work a run dispatches to workers. It mirrors
// Piccolo's KernelRegistry: kernels and the methods they expose register
// themselves at init time via Register and RegisterMethod, and the
// control plane looks them up by name at dispatch time.
package kernel

import (
	"fmt"
	"reflect"
	"sync"
)

// Method is a callable unit of work a kernel exposes. table and shard
// identify which partition the call applies to; the kernel is responsible
// for reading/writing only that shard.
type Method func(k interface{}, table, shard int) error

// Info describes one registered kernel: its constructor and the methods
// it exposes by name.
type Info struct {
	Name    string
	New     func() interface{}
	Type    reflect.Type
	methods map[string]Method
}

// Method looks up a registered method by name.
func (i *Info) Method(name string) (Method, bool) {
	m, ok := i.methods[name]
	return m, ok
}

// Methods returns the names of every method registered on the kernel, in
// no particular order.
func (i *Info) Methods() []string {
	names := make([]string, 0, len(i.methods))
	for name := range i.methods {
		names = append(names, name)
	}
	return names
}

var (
	mu       sync.Mutex
	registry = map[string]*Info{}
)

// Register adds a new kernel to the registry under name. new constructs a
// fresh instance of the kernel; Register calls it once to record the
// kernel's Type, and it is kept as Info.New for callers that want an
// instance.
// Register panics if name is already registered, matching the
// fail-at-init-time behavior of a static registration macro.
func Register(name string, new func() interface{}) *Info {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("kernel: duplicate registration for %q", name))
	}
	sample := new()
	info := &Info{
		Name:    name,
		New:     new,
		Type:    reflect.TypeOf(sample),
		methods: map[string]Method{},
	}
	registry[name] = info
	return info
}

// RegisterMethod adds fn to the kernel's method table under name. It is
// meant to be chained off the return value of Register:
//
//	var wordCount = kernel.Register("WordCount", func() interface{} { return &WordCount{} })
//	func init() {
//		kernel.RegisterMethod(wordCount, "Map", func(k interface{}, table, shard int) error {
//			return k.(*WordCount).Map(table, shard)
//		})
//	}
func RegisterMethod(info *Info, name string, fn Method) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := info.methods[name]; ok {
		panic(fmt.Sprintf("kernel: duplicate method %q on %q", name, info.Name))
	}
	info.methods[name] = fn
}

// Lookup returns the Info registered under name.
func Lookup(name string) (*Info, bool) {
	mu.Lock()
	defer mu.Unlock()
	i, ok := registry[name]
	return i, ok
}

// Names returns every registered kernel name, in no particular order.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
