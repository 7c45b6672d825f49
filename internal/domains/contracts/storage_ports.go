package contracts

import "did-vault/go-backend/pkg/models"

// DIDFilter narrows ListDIDs.
type DIDFilter int

const (
	DIDsAll DIDFilter = iota
	DIDsWithPrivateKey
	DIDsWithoutPrivateKey
)

// Storage is the persistence the vault depends on. Secrets handed to it are
// already codec ciphertext. Absent entries are reported with ErrNotFound,
// except metadata and the cursor, which load as zero values. Delete* report
// whether anything was removed. Implementations must be safe for concurrent
// use.
type Storage interface {
	StoreRootIdentity(encrypted string) error
	LoadRootIdentity() (string, error)
	ContainsRootIdentity() (bool, error)
	// StoreMnemonic with an empty value clears the stored mnemonic.
	StoreMnemonic(encrypted string) error
	LoadMnemonic() (string, error)
	StoreCursor(index uint32) error
	LoadCursor() (uint32, error)

	StoreDocument(doc *models.Document) error
	LoadDocument(did models.DID) (*models.Document, error)
	ContainsDocument(did models.DID) (bool, error)
	// DeleteDID removes the document together with its metadata, credentials
	// and private keys.
	DeleteDID(did models.DID) (bool, error)
	ListDIDs(filter DIDFilter) ([]models.DID, error)
	StoreDocumentMeta(did models.DID, meta models.Metadata) error
	LoadDocumentMeta(did models.DID) (models.Metadata, error)

	StoreCredential(cred *models.Credential) error
	LoadCredential(did models.DID, id models.DIDURL) (*models.Credential, error)
	ContainsCredentials(did models.DID) (bool, error)
	DeleteCredential(did models.DID, id models.DIDURL) (bool, error)
	ListCredentials(did models.DID) ([]models.DIDURL, error)
	StoreCredentialMeta(did models.DID, id models.DIDURL, meta models.Metadata) error
	LoadCredentialMeta(did models.DID, id models.DIDURL) (models.Metadata, error)

	StorePrivateKey(did models.DID, id models.DIDURL, encrypted string) error
	LoadPrivateKey(did models.DID, id models.DIDURL) (string, error)
	ContainsPrivateKeys(did models.DID) (bool, error)
	DeletePrivateKey(did models.DID, id models.DIDURL) (bool, error)
	ListPrivateKeys(did models.DID) ([]models.DIDURL, error)

	// ReEncrypt rewrites the root identity, the mnemonic and every private key
	// through fn. Either every secret is replaced or none is.
	ReEncrypt(fn func(encrypted string) (string, error)) error

	Close() error
}
