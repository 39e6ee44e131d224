// Package gtt defines the graphics translation table formats shared by the
// shadow page-table engine: entry kinds and their relations, the 64-bit
// entry codec of each supported hardware generation, the error taxonomy,
// and the collaborator interfaces that connect the engine to a hypervisor.
package gtt
