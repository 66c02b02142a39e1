package bus_test

import (
	"testing"

	"github.com/busline/msgbus/pkg/bus"
)

type registryTestMessage struct {
	Name string
}

func TestTypeRegistryResolvesRegisteredType(t *testing.T) {
	registry := bus.NewTypeRegistry()
	registered := registry.Register(registryTestMessage{})

	name := registry.NameOf(registryTestMessage{})
	resolved, found := registry.Resolve(name)
	if !found {
		t.Fatalf("expected %q to resolve", name)
	}
	if resolved != registered {
		t.Fatalf("resolved type %v does not match registered type %v", resolved, registered)
	}
}

func TestTypeRegistryResolvesPointerAndValueSamplesToSameType(t *testing.T) {
	registry := bus.NewTypeRegistry()
	registry.Register(&registryTestMessage{})

	valueName := registry.NameOf(registryTestMessage{})
	ptrName := registry.NameOf(&registryTestMessage{})
	if valueName != ptrName {
		t.Fatalf("expected pointer and value names to match, got %q and %q", ptrName, valueName)
	}

	if _, found := registry.Resolve(valueName); !found {
		t.Fatalf("expected %q to resolve after registering a pointer sample", valueName)
	}
}

func TestTypeRegistryUnresolvedNameNotFound(t *testing.T) {
	registry := bus.NewTypeRegistry()
	if _, found := registry.Resolve("no.such.Type"); found {
		t.Fatalf("expected unregistered name to not be found")
	}
}
