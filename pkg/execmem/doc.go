/*
Package execmem manages executable memory regions for loaded modules:
mmap a private RW region, copy the artifact bytes in, synchronize
instruction caches, then mprotect to RX before the entry point is ever
invoked. Free reverts to RW, zeroes the region, and unmaps it. A region
must never be reused for any purpose other than the module it was
allocated for.
*/
package execmem
