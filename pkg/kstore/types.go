// Package kstore is the persistence layer of the knowledge store: schema,
// migrations, transactional CRUD, cascade-delete ordering, and the
// append-only provenance DAG. It owns one SQLite file per logical corpus.
package kstore

import "time"

// DocumentStatus is the closed set a Document.Status is constrained to.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentComplete   DocumentStatus = "complete"
	DocumentFailed     DocumentStatus = "failed"
)

// EmbeddingStatus is the closed set a Chunk.EmbeddingStatus is constrained to.
type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingComplete EmbeddingStatus = "complete"
	EmbeddingFailed   EmbeddingStatus = "failed"
)

// EntityType is the closed set Entity.Type and KGNode.Type are constrained to.
type EntityType string

const (
	EntityPerson         EntityType = "person"
	EntityOrganization   EntityType = "organization"
	EntityDate           EntityType = "date"
	EntityAmount         EntityType = "amount"
	EntityCaseNumber     EntityType = "case_number"
	EntityLocation       EntityType = "location"
	EntityStatute        EntityType = "statute"
	EntityExhibit        EntityType = "exhibit"
	EntityMedication     EntityType = "medication"
	EntityDiagnosis      EntityType = "diagnosis"
	EntityMedicalDevice  EntityType = "medical_device"
	EntityOther          EntityType = "other"
)

var validEntityTypes = map[EntityType]bool{
	EntityPerson: true, EntityOrganization: true, EntityDate: true,
	EntityAmount: true, EntityCaseNumber: true, EntityLocation: true,
	EntityStatute: true, EntityExhibit: true, EntityMedication: true,
	EntityDiagnosis: true, EntityMedicalDevice: true, EntityOther: true,
}

// IsValidEntityType reports whether t is a member of the closed entity-type set.
func IsValidEntityType(t EntityType) bool { return validEntityTypes[t] }

// RelationshipType is the closed set KGEdge.RelationshipType is constrained to.
type RelationshipType string

const (
	RelCoLocated   RelationshipType = "co_located"
	RelCoMentioned RelationshipType = "co_mentioned"
	RelWorksAt     RelationshipType = "works_at"
	RelRepresents  RelationshipType = "represents"
	RelLocatedIn   RelationshipType = "located_in"
	RelFiledIn     RelationshipType = "filed_in"
	RelCites       RelationshipType = "cites"
	RelReferences  RelationshipType = "references"
	RelPartyTo     RelationshipType = "party_to"
	RelRelatedTo   RelationshipType = "related_to"
	RelPrecedes    RelationshipType = "precedes"
	RelOccurredAt  RelationshipType = "occurred_at"
)

var validRelationshipTypes = map[RelationshipType]bool{
	RelCoLocated: true, RelCoMentioned: true, RelWorksAt: true, RelRepresents: true,
	RelLocatedIn: true, RelFiledIn: true, RelCites: true, RelReferences: true,
	RelPartyTo: true, RelRelatedTo: true, RelPrecedes: true, RelOccurredAt: true,
}

// IsValidRelationshipType reports whether t is a member of the closed relationship-type set.
func IsValidRelationshipType(t RelationshipType) bool { return validRelationshipTypes[t] }

// DefaultTypeMultipliers are the default relationship-type weight multipliers
// used by edge normalization. Missing types default to 1.0.
var DefaultTypeMultipliers = map[RelationshipType]float64{
	RelCoLocated: 1.5, RelCoMentioned: 1.0, RelWorksAt: 2.0, RelRepresents: 2.0,
	RelLocatedIn: 1.5, RelFiledIn: 1.5, RelCites: 1.5, RelReferences: 1.0,
	RelPartyTo: 2.0, RelRelatedTo: 1.0, RelPrecedes: 1.0, RelOccurredAt: 1.0,
}

// ProvenanceType is the closed set Provenance.Type is constrained to.
type ProvenanceType string

const (
	ProvDocument         ProvenanceType = "DOCUMENT"
	ProvOCRResult        ProvenanceType = "OCR_RESULT"
	ProvChunk            ProvenanceType = "CHUNK"
	ProvImage            ProvenanceType = "IMAGE"
	ProvVLMDescription   ProvenanceType = "VLM_DESCRIPTION"
	ProvEmbedding        ProvenanceType = "EMBEDDING"
	ProvExtraction       ProvenanceType = "EXTRACTION"
	ProvFormFill         ProvenanceType = "FORM_FILL"
	ProvEntityExtraction ProvenanceType = "ENTITY_EXTRACTION"
	ProvKnowledgeGraph   ProvenanceType = "KNOWLEDGE_GRAPH"
	ProvComparison       ProvenanceType = "COMPARISON"
)

// OrphanedRoot is the reserved sentinel used for root_document_id after a
// surviving KGNode's originating document is deleted. No Provenance row
// ever carries this literal string as its own id; comparisons are literal.
const OrphanedRoot = "ORPHANED_ROOT"

// QualityMode is the closed set OCRResult.QualityMode is constrained to.
type QualityMode string

const (
	QualityFast     QualityMode = "fast"
	QualityBalanced QualityMode = "balanced"
	QualityAccurate QualityMode = "accurate"
)

// Document is the identity of an ingested file.
type Document struct {
	ID            string
	FilePath      string
	FileName      string
	FileHash      string
	SizeBytes     int64
	FileType      string
	Status        DocumentStatus
	PageCount     int
	ProvenanceID  string
	Title         string
	Author        string
	Subject       string
	ExternalRef   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OCRResult is the extracted text and metadata produced once OCR succeeds.
type OCRResult struct {
	ID            string
	DocumentID    string
	ProvenanceID  string
	ExtractedText string
	TextLength    int
	RequestID     string
	QualityMode   QualityMode
	PageCount     int
	QualityScore  float64
	Cost          float64
	ContentHash   string
	BlocksJSON    string
	ExtrasJSON    string
	CreatedAt     time.Time
}

// Chunk is a contiguous half-open span of OCR text.
type Chunk struct {
	ID              string
	DocumentID      string
	ProvenanceID    string
	Index           int
	CharacterStart  int
	CharacterEnd    int
	Page            int
	OverlapBefore   int
	OverlapAfter    int
	Text            string
	TextHash        string
	EmbeddingStatus EmbeddingStatus
	CreatedAt       time.Time
}

// Embedding is a vector for exactly one of a chunk, image, or extraction record.
type Embedding struct {
	ID           string
	ProvenanceID string
	ChunkID      string
	ImageID      string
	ExtractionID string
	Vector       []float32
	Model        string
	TaskType     string
	OriginalText string
	CreatedAt    time.Time
}

// Entity is a per-document entity mention cluster.
type Entity struct {
	ID             string
	DocumentID     string
	ProvenanceID   string
	Type           EntityType
	RawText        string
	NormalizedText string
	Confidence     float64
	AliasesJSON    string
	MetadataJSON   string
	CreatedAt      time.Time
}

// EntityMention is one textual occurrence of an Entity.
type EntityMention struct {
	ID             string
	EntityID       string
	DocumentID     string
	ChunkID        string // nullable when position unknown
	Page           int
	CharacterStart int
	CharacterEnd   int
	ContextSnippet string
	CreatedAt      time.Time
}

// KGNode is a canonical entity shared across documents.
type KGNode struct {
	ID              string
	ProvenanceID    string
	Type            EntityType
	CanonicalName   string
	NormalizedName  string
	AliasesJSON     string
	DocumentCount   int
	MentionCount    int
	EdgeCount       int
	AvgConfidence   float64
	ImportanceScore float64
	MetadataJSON    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastAccessedAt  *time.Time
}

// NodeEntityLink is a many-to-many link from a KGNode to a per-document Entity.
type NodeEntityLink struct {
	ID               string
	NodeID           string
	EntityID         string
	DocumentID       string
	SimilarityScore  float64
	ResolutionMethod string // exact|fuzzy|ai|gemini_coreference
	CreatedAt        time.Time
}

// KGEdge is a typed relationship between two KGNodes.
type KGEdge struct {
	ID                string
	ProvenanceID      string
	SourceNodeID      string
	TargetNodeID      string
	RelationshipType  RelationshipType
	Weight            float64
	NormalizedWeight  float64
	EvidenceCount     int
	ContradictionCount int
	DocumentIDsJSON   string
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	MetadataJSON      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Provenance is an append-only node in the processing DAG.
type Provenance struct {
	ID              string
	Type            ProvenanceType
	ProcessorName   string
	ProcessorVersion string
	ParametersJSON  string
	ContentHash     string
	InputHash       string
	ParentID        string
	ParentIDsJSON   string
	RootDocumentID  string
	ChainDepth      int
	ChainPath       string // JSON array of provenance ids from the root down to this row (root first)
	CreatedAt       time.Time
}
