/*
Package kvdoc implements a schema-typed document layer on top of a flat
key-value store that supports exact get, set, delete and prefix scans (Bolt,
Badger, Redis, or an in-memory map).

We implement:

1. Schemas, describing the shape of stored values: primitives, sub-records,
arrays, and root records whose fields may be marked as pointer fields.

2. Tables, storing values under composite keys, validating them against the
table schema on write (in strict mode).

3. Field partitions, emulating a secondary index for every pointer field:
the partition holds one pointer per record, keyed by the field value.

4. Prefix queries with offset pagination over master records or over a field
partition, following pointers one hop.

# Technical Details

**Keys.**
Master records live under TBL:<table>-<id>. The partition of pointer field f
lives under TBL:<table>-PTR:<f>-<value>/<id>. Table and field names may not
contain '-' or ':', so the prefixes of different tables and fields never
overlap. Master scans skip the partitions.

**Values** are encoded as JSON (or MsgPack). Records and arrays are stored
as is. Bare primitives are wrapped in an envelope recording their kind:

	{"isSingular":true,"value":10,"castInto":"int"}

**Pointers** are stored as {"isPointer":true,"target":"<key>"} and are
recognized before the value is decoded. Records carrying a true isSingular or
isPointer field are rejected on write, so neither envelope is ambiguous.
Tables opened with LegacyPointers also treat any stored string containing
"PTR" as a pointer key, which is how older writers stored them.

**Encryption.**
With an encryption key, values are stored as hex(IV || AES-256-CBC(value)).
Pointers are not encrypted.

**Pagination.**
Limit*Page leading scan hits are skipped. Limit is not a cap on the number of
results.
*/
package kvdoc
