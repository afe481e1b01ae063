/*
Package loader implements the ModuleLoader and the raw ABI invocation it
requires: calling a function pointer at offset 0 of an execmem.Region with
the frozen SystemApi/ModuleInterface calling convention, with no ELF or
object-format parsing involved.

Raw function-pointer calls and C-callable callbacks (for the host
capabilities modules call back into) are done through
github.com/ebitengine/purego, the idiomatic cgo-free mechanism for this in
the Go ecosystem; there is no teacher analogue for this concern since a
container runtime never calls into raw code it mapped itself.
*/
package loader
