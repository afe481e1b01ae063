/*
Package verify implements digest and signature checking of a downloaded
artifact against manifest-supplied values: a SHA-256 digest comparison,
followed by an optional RSA-PKCS#1 v1.5 signature check over the digest
under a configured PEM-encoded public key (grounded on the PEM/x509
handling used elsewhere in this codebase for certificate material).

Only manifest-supplied digest and signature values are ever consulted;
no value derived from the artifact bytes themselves, or from any
side-file, participates in the decision.
*/
package verify
