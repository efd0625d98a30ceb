package datamodel

// OID is a 64-bit database row identifier assigned at INSERT time (spec
// §3, glossary). InvalidOID marks absence.
type OID int64

// InvalidOID is the sentinel value meaning "no row".
const InvalidOID OID = 0
