package vidscribe

import "github.com/vidscribe/vidscribe/id"

// ID is the primary identifier type for all Vidscribe entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
