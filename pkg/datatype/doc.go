// Package datatype implements the recursive type system that maps native Go
// values to wire.Value messages and back.
//
// A Type is one of a closed set of cases:
//
//	Basic        Boolean, Integer, Real, String, Binary, Date, Time, Timestamp
//	List         homogeneous list of Elem
//	Structure    ordered named fields
//	Constrained  a base type plus constraint.Constraint rules
//	Defined      a named data type definition of a feature
//
// Native representations:
//
//	Boolean    bool
//	Integer    int64
//	Real       float64
//	String     string
//	Binary     []byte
//	Date       native.Date
//	Time       native.Time
//	Timestamp  native.Timestamp
//	List       []any
//	Structure  map[string]any
//
// Binaries larger than Codec.InlineThreshold travel as a reference to a
// binary transfer. Decoding such a reference blocks on the BinaryStore
// until the upload is complete or the context ends.
package datatype
