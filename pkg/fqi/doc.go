// Package fqi parses and builds fully qualified identifiers (FQIs), the
// canonical path-like names of Feature-model nodes.
//
// Grammar, per node kind:
//
//	Feature                originator/category/Feature/vMajor[_Minor]
//	Command                <Feature>/Command/Identifier
//	Parameter              <Command>/Parameter/Identifier
//	Response               <Command>/Response/Identifier
//	IntermediateResponse   <Command>/IntermediateResponse/Identifier
//	Property               <Feature>/Property/Identifier
//	DataType               <Feature>/DataType/Identifier
//	DefinedExecutionError  <Feature>/DefinedExecutionError/Identifier
//	Metadata               <Feature>/Metadata/Identifier
//
// Identifiers start with an upper-case letter followed by letters and digits.
// Originator and category are lower-case, dot separated names. FQIs compare
// case-insensitively; Key returns the lookup form.
package fqi
