// Package model implements the feature model of a server.
//
// # Hierarchy
//
// A server implements a set of features. Each feature owns named nodes:
//
//	Server
//	├── Feature (org.silastandard/core/SiLAService/v1)
//	│   ├── Command       parameters, responses, intermediate responses
//	│   ├── Property      observable or unobservable
//	│   ├── DataType      named, reusable types
//	│   ├── DefinedExecutionError
//	│   └── Metadata      client-supplied values affecting calls
//	└── ...
//
// Every node is addressed by its fully qualified identifier (see package
// fqi). Lookups are case-insensitive.
//
// # Building
//
// A Builder takes parsed feature definitions (package featuredef) and the
// handlers that implement them, and produces an immutable Registry:
//
//	b := model.NewBuilder()
//	b.AddFeature(def)
//	b.HandleCommand(greeting.Command("SayHello"), sayHello)
//	b.HandleObservableProperty(greeting.Property("StartYear"), startYear)
//	reg, err := b.Build()
//
// Build resolves data type references, rejects cycles between named data
// types, checks that every constraint applies to its base type and that
// every referenced error exists. A Registry is safe for concurrent use.
package model
