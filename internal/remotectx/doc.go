// Package remotectx implements an execution context backed by an
// out-of-process language runtime reached over socket.io.
//
// Every operation is a "request" event carrying a correlation id; the
// runtime answers with a "response" event echoing that id. Arguments and
// outputs always travel as value packages. The runtime may push a
// "functions" event listing the functions it provides at any time.
package remotectx
