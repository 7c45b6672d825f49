package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"did-vault/go-backend/internal/domains/contracts"
	"did-vault/go-backend/pkg/models"

	"github.com/klauspost/compress/zip"
)

// maxEntryBytes caps a single decompressed archive entry.
const maxEntryBytes = 16 << 20

type ArchiveReport struct {
	Root       bool
	Identities []models.DID
}

// ExportStore writes the root identity and every stored identity as zip
// entries. Identity entries are named by method-specific id.
func (e *Engine) ExportStore(w io.Writer, exportPassword, storePassword string) (report ArchiveReport, err error) {
	const op = "exportStore"
	defer func() { err = e.finish(op, err) }()

	if err := requirePasswords(op, exportPassword, storePassword); err != nil {
		return report, err
	}
	dids, err := e.storage.ListDIDs(contracts.DIDsAll)
	if err != nil {
		return report, contracts.StorageFailure(op, err)
	}
	hasRoot, err := e.storage.ContainsRootIdentity()
	if err != nil {
		return report, contracts.StorageFailure(op, err)
	}

	zw := zip.NewWriter(w)
	modified := e.now().UTC()
	writeEntry := func(name string, payload []byte) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return contracts.StorageFailure(op, err)
		}
		if _, err := fw.Write(payload); err != nil {
			return contracts.StorageFailure(op, err)
		}
		return nil
	}

	if hasRoot {
		b, err := e.buildRootBundle(op, exportPassword, storePassword)
		if err != nil {
			return report, err
		}
		payload, err := marshalBundle(op, b)
		if err != nil {
			return report, err
		}
		if err := writeEntry(RootEntryName, payload); err != nil {
			return report, err
		}
		report.Root = true
	}
	for _, did := range dids {
		b, err := e.buildIdentityBundle(op, did, exportPassword, storePassword)
		if err != nil {
			return report, err
		}
		payload, err := marshalBundle(op, b)
		if err != nil {
			return report, err
		}
		if err := writeEntry(did.MethodSpecificID, payload); err != nil {
			return report, err
		}
		report.Identities = append(report.Identities, did)
	}
	if err := zw.Close(); err != nil {
		return report, contracts.StorageFailure(op, err)
	}
	e.logger.Info("store exported", "operation", op, "root", report.Root, "identities", len(report.Identities))
	return report, nil
}

// ImportStore verifies and re-encrypts every entry before anything is
// written. One bad entry aborts the whole import. Writes are not
// transactional: a storage failure while committing leaves the entries
// already listed in the returned report in place.
func (e *Engine) ImportStore(r io.ReaderAt, size int64, exportPassword, storePassword string) (report ArchiveReport, err error) {
	const op = "importStore"
	defer func() { err = e.finish(op, err) }()

	if err := requirePasswords(op, exportPassword, storePassword); err != nil {
		return report, err
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return report, contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
	}

	var root *stagedRoot
	var identities []*stagedIdentity
	seen := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		if seen[f.Name] {
			return report, integrityError(op, "", "duplicate archive entry %q", f.Name)
		}
		seen[f.Name] = true
		data, err := readEntry(f)
		if err != nil {
			return report, contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
		}
		if f.Name == RootEntryName {
			if root, err = e.stageRoot(op, data, exportPassword, storePassword); err != nil {
				return report, err
			}
			continue
		}
		st, err := e.stageIdentity(op, data, exportPassword, storePassword)
		if err != nil {
			return report, err
		}
		if st.doc.Subject.MethodSpecificID != f.Name {
			return report, integrityError(op, st.doc.Subject.String(), "archive entry %q holds another identity", f.Name)
		}
		identities = append(identities, st)
	}

	if root != nil {
		if err := e.commitRoot(op, root); err != nil {
			return report, err
		}
		report.Root = true
	}
	for _, st := range identities {
		if err := e.commitIdentity(op, st); err != nil {
			return report, err
		}
		report.Identities = append(report.Identities, st.doc.Subject)
	}
	e.logger.Info("store imported", "operation", op, "root", report.Root, "identities", len(report.Identities))
	return report, nil
}

// ExportStoreFile writes the archive next to path and renames it into place
// with owner-only permissions.
func (e *Engine) ExportStoreFile(path, exportPassword, storePassword string) (ArchiveReport, error) {
	const op = "exportStoreFile"
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	report, err := e.ExportStore(tmp, exportPassword, storePassword)
	if err != nil {
		_ = tmp.Close()
		return ArchiveReport{}, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	if err := tmp.Close(); err != nil {
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	return report, nil
}

func (e *Engine) ImportStoreFile(path, exportPassword, storePassword string) (ArchiveReport, error) {
	const op = "importStoreFile"
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ArchiveReport{}, contracts.Errorf(op, "", contracts.ErrNotFound, "archive %s does not exist", filepath.Base(path))
		}
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ArchiveReport{}, contracts.StorageFailure(op, err)
	}
	return e.ImportStore(f, info.Size(), exportPassword, storePassword)
}

func marshalBundle(op string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, contracts.NewError(op, "", contracts.ErrInvalidArgument, err)
	}
	return payload, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxEntryBytes {
		return nil, fmt.Errorf("entry %q is too large", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntryBytes {
		return nil, fmt.Errorf("entry %q is too large", f.Name)
	}
	return data, nil
}
