package gtt

// EntryKind tags a table slot or a whole table page with the level and
// format it belongs to. The kind decides which bit-layout interpretation of
// the raw 64-bit value is valid.
type EntryKind int

// Entry kinds. The table kinds must stay contiguous and ordered from the
// lowest level up, as the scratch tree and the shadow walkers iterate over
// them by value.
const (
	KindInvalid EntryKind = iota

	KindGGTTPTE

	KindPTE4K
	KindPTE2M
	KindPTE1G

	KindPDEEntry
	KindPDPEntry
	KindPML4Entry

	KindRootL2
	KindRootL3
	KindRootL4

	KindPTETable
	KindPDETable
	KindPDPTable
	KindPML4Table

	kindCount
)

func (k EntryKind) String() string {
	names := map[EntryKind]string{
		KindInvalid:   "Invalid",
		KindGGTTPTE:   "GGTTPTE",
		KindPTE4K:     "PTE4K",
		KindPTE2M:     "PTE2M",
		KindPTE1G:     "PTE1G",
		KindPDEEntry:  "PDEEntry",
		KindPDPEntry:  "PDPEntry",
		KindPML4Entry: "PML4Entry",
		KindRootL2:    "RootL2",
		KindRootL3:    "RootL3",
		KindRootL4:    "RootL4",
		KindPTETable:  "PTETable",
		KindPDETable:  "PDETable",
		KindPDPTable:  "PDPTable",
		KindPML4Table: "PML4Table",
	}

	if n, ok := names[k]; ok {
		return n
	}

	return "Unknown"
}

// kindRelation describes, for one kind, the kind of the entries inside a
// table of that kind, the kind of the next-level table an entry points at,
// the large-page kind the entry becomes when its PSE bit is set, and the
// kind of the table that holds entries of this kind. KindInvalid in any
// position means the relation does not exist, which terminates walks.
type kindRelation struct {
	entry      EntryKind
	nextTable  EntryKind
	largePage  EntryKind
	ownerTable EntryKind
}

var kindRelations = map[EntryKind]kindRelation{
	KindGGTTPTE: {
		entry: KindGGTTPTE,
	},
	KindRootL4: {
		entry:     KindRootL4,
		nextTable: KindPML4Table,
	},
	KindRootL3: {
		entry:     KindRootL3,
		nextTable: KindPDETable,
		largePage: KindPTE1G,
	},
	KindRootL2: {
		entry:     KindRootL2,
		nextTable: KindPTETable,
		largePage: KindPTE2M,
	},
	KindPML4Table: {
		entry:     KindPML4Entry,
		nextTable: KindPDPTable,
	},
	KindPML4Entry: {
		entry:      KindPML4Entry,
		nextTable:  KindPDPTable,
		ownerTable: KindPML4Table,
	},
	KindPDPTable: {
		entry:     KindPDPEntry,
		nextTable: KindPDETable,
		largePage: KindPTE1G,
	},
	KindPDPEntry: {
		entry:      KindPDPEntry,
		nextTable:  KindPDETable,
		largePage:  KindPTE1G,
		ownerTable: KindPDPTable,
	},
	KindPDETable: {
		entry:     KindPDEEntry,
		nextTable: KindPTETable,
		largePage: KindPTE2M,
	},
	KindPDEEntry: {
		entry:      KindPDEEntry,
		nextTable:  KindPTETable,
		largePage:  KindPTE2M,
		ownerTable: KindPDETable,
	},
	KindPTETable: {
		entry: KindPTE4K,
	},
	KindPTE4K: {
		entry:      KindPTE4K,
		ownerTable: KindPTETable,
	},
	KindPTE2M: {
		entry:     KindPDEEntry,
		largePage: KindPTE2M,
	},
	KindPTE1G: {
		entry:     KindPDPEntry,
		largePage: KindPTE1G,
	},
}

// EntryKindOf returns the kind of the entries held by a table of kind k.
func EntryKindOf(k EntryKind) EntryKind {
	return kindRelations[k].entry
}

// NextTableKind returns the kind of the table an entry of kind k points at.
func NextTableKind(k EntryKind) EntryKind {
	return kindRelations[k].nextTable
}

// LargePageKind returns the kind an entry of kind k becomes when its
// page-size bit is set.
func LargePageKind(k EntryKind) EntryKind {
	return kindRelations[k].largePage
}

// OwnerTableKind returns the kind of the table that holds entries of kind
// k. Root-pointer entries have no owner table.
func OwnerTableKind(k EntryKind) EntryKind {
	return kindRelations[k].ownerTable
}

// IsTableKind reports whether k names a page-table page.
func IsTableKind(k EntryKind) bool {
	return k >= KindPTETable && k < kindCount
}

// IsPTETableKind reports whether k is the lowest-level table kind, whose
// entries map data pages rather than deeper tables.
func IsPTETableKind(k EntryKind) bool {
	return k == KindPTETable
}

// IsRootKind reports whether k is a root-pointer entry kind.
func IsRootKind(k EntryKind) bool {
	return k == KindRootL2 || k == KindRootL3 || k == KindRootL4
}

// IsEntryKind reports whether k names a table slot rather than a table
// page.
func IsEntryKind(k EntryKind) bool {
	return k > KindInvalid && k < KindPTETable
}
