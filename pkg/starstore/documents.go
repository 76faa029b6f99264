package starstore

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/edms-forge/starstore/pkg/envelope"
)

// DocumentSpec describes a versioned document to create under a folder.
type DocumentSpec struct {
	// ParentFolderID is the owning folder. Required.
	ParentFolderID string

	// Name of the document. Unique within the parent folder; an existing
	// document of the same name is reused as the creation template.
	// Required.
	Name string

	// Description. Defaults to Name when blank.
	Description string

	// Comment is set only when non-empty.
	Comment string

	// FileNames are attachment names, serialized into the repository's
	// single flat field with the configured separator.
	FileNames []string
}

// Validate checks required fields before any network call.
func (s *DocumentSpec) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ParentFolderID, validation.Required),
		validation.Field(&s.Name, validation.Required),
	)
}

// Document fetches one versioned-document record by id.
func (c *Client) Document(irvID string) (envelope.Record, error) {
	const op = "Document"
	if irvID == "" {
		return nil, inputErr(op, "document id is required")
	}
	return c.callRecord(op, fmt.Sprintf("/irv/%s", url.PathEscape(irvID)), nil)
}

// DocumentFiles lists the file attachments of a versioned document.
func (c *Client) DocumentFiles(irvID string) ([]FileInfo, error) {
	const op = "DocumentFiles"
	if irvID == "" {
		return nil, inputErr(op, "document id is required")
	}

	path := fmt.Sprintf("/irv/%s/files", url.PathEscape(irvID))
	records, err := c.callRecordList(op, path, nil)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(records))
	for _, rec := range records {
		info, err := fileInfoFromRecord(rec)
		if err != nil {
			c.logger.Warn("skipping malformed file record", "document", irvID, "error", err)
			continue
		}
		files = append(files, info)
	}
	return files, nil
}

// FindFile returns the attachment of a document with the given name, or an
// ErrRemote-kinded error when no attachment matches.
func (c *Client) FindFile(irvID, name string) (FileInfo, error) {
	const op = "FindFile"
	files, err := c.DocumentFiles(irvID)
	if err != nil {
		return FileInfo{}, err
	}
	for _, f := range files {
		if f.Name == name {
			return f, nil
		}
	}
	return FileInfo{}, &Error{Op: op, Err: ErrRemote, Msg: fmt.Sprintf("document %s has no file %q", irvID, name)}
}

// CreateDocument creates a versioned document under spec.ParentFolderID.
//
// An existing document of the same name is used as the template, so
// server-assigned fields (in particular the ir linkage) survive into the new
// version; otherwise creation starts from a minimal record. Description,
// comment, container id and the inherited nauId are always (re)written on
// top of the template.
func (c *Client) CreateDocument(spec DocumentSpec) (envelope.Record, error) {
	const op = "CreateDocument"
	if err := spec.Validate(); err != nil {
		return nil, inputErr(op, "%v", err)
	}
	for _, fn := range spec.FileNames {
		if strings.Contains(fn, c.sep) {
			return nil, inputErr(op, "file name %q contains the separator %q", fn, c.sep)
		}
	}

	template, err := c.documentTemplate(op, spec.ParentFolderID, spec.Name)
	if err != nil {
		return nil, err
	}

	description := spec.Description
	if description == "" {
		description = spec.Name
	}
	template["description"] = description
	if spec.Comment != "" {
		template["comment"] = spec.Comment
	}
	template["parentId"] = spec.ParentFolderID

	// Project the inherited resource id out of the template's linkage, if
	// the server supplied one.
	if ir, ok := template["ir"].(map[string]any); ok {
		if nauID, ok := ir["nauId"]; ok && nauID != nil {
			template["nauId"] = nauID
		}
	}

	if len(spec.FileNames) > 0 {
		// The remote field is flat; multiple names share one string.
		template["fileName"] = strings.Join(spec.FileNames, c.sep)
	}

	c.logger.Debug("creating document", "name", spec.Name, "parent", spec.ParentFolderID,
		"from_template", template["id"] != nil)

	createPath := fmt.Sprintf("/folder/%s/irvs", url.PathEscape(spec.ParentFolderID))
	return c.callRecord(op, createPath, map[string]any(template))
}

// documentTemplate searches the parent folder for an existing version named
// name. A not-found error yields the minimal creation record; any other
// error propagates.
func (c *Client) documentTemplate(op, parentID, name string) (envelope.Record, error) {
	findPath := fmt.Sprintf("/folder/%s/irvs/find", url.PathEscape(parentID))
	res, err := c.call(op, findPath, map[string]any{"name": name}, nil)
	if err != nil {
		return nil, err
	}

	if res.IsError() {
		if res.IsTimeout() || !c.isNotFound(res.ErrMessage()) {
			return nil, remoteErr(op, res)
		}
		return minimalDocument(name), nil
	}

	if found := c.matchByName(res, name); found != nil {
		// Copy so template rewriting never aliases a caller-visible record.
		template := make(envelope.Record, len(found)+4)
		for k, v := range found {
			template[k] = v
		}
		return template, nil
	}
	return minimalDocument(name), nil
}

func minimalDocument(name string) envelope.Record {
	return envelope.Record{
		"name":         name,
		"withMetaData": false,
	}
}
