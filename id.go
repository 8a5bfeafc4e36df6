package biskit

import "github.com/ostrokach/biskit/id"

// ID is the primary identifier type for all Biskit entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
