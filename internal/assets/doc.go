// Package assets implements the content-addressable download and extraction
// cache.
//
// Layout under the cache root:
//
//	<root>/
//	  <sha256>                  downloaded file, named by its expected hash
//	  expanded/
//	    <sha256>/               expanded archive, named by the archive's hash
//	    <sha256>.tmp-NNNN/      in-progress or failed extraction
//
// A file's expected hash comes from the sidecar published at url+".sha256".
// Entries are never mutated in place or evicted. Downloads and extractions are
// written under a temporary name and published with a rename, so readers never
// observe a partial entry under its final name.
package assets
