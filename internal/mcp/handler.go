package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tendant/oss-upload/pkg/ossupload"
	"github.com/tendant/oss-upload/pkg/ossupload/objectkey"
)

// Uploader is the part of ossupload.Uploader the tools need
type Uploader interface {
	Upload(ctx context.Context, file ossupload.File) (*ossupload.Result, error)
	Sign(ctx context.Context, file ossupload.File) (*ossupload.Request, error)
}

// UploadHandler exposes signed uploads as MCP tools
type UploadHandler struct {
	uploader  Uploader
	keyPrefix string
	logger    *slog.Logger
}

// NewUploadHandler creates a new instance of UploadHandler
func NewUploadHandler(uploader Uploader, keyPrefix string, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{
		uploader:  uploader,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

var pathSchema = map[string]any{
	"path": map[string]any{
		"type":        "string",
		"description": "Absolute path of the local file",
	},
}

// RegisterTools registers the upload tools with the MCP server
func (h *UploadHandler) RegisterTools(s *server.MCPServer) {
	s.AddTool(mcp.Tool{
		Name:        "upload_file",
		Description: "Upload a local file to the bucket with a freshly signed policy and return its public URL",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: pathSchema,
			Required:   []string{"path"},
		},
	}, h.handleUploadFile)

	s.AddTool(mcp.Tool{
		Name:        "sign_upload",
		Description: "Return the signed POST form for a local file without uploading it",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: pathSchema,
			Required:   []string{"path"},
		},
	}, h.handleSignUpload)

	s.AddTool(mcp.Tool{
		Name:        "object_key",
		Description: "Preview the object key an upload of a local file would get",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: pathSchema,
			Required:   []string{"path"},
		},
	}, h.handleObjectKey)
}

func pathArgument(request mcp.CallToolRequest) (string, error) {
	if pathVal, ok := request.GetArguments()["path"]; ok && pathVal != nil {
		if pathStr, ok := pathVal.(string); ok && pathStr != "" {
			return pathStr, nil
		}
	}
	return "", fmt.Errorf("path is required")
}

func (h *UploadHandler) fileArgument(request mcp.CallToolRequest) (ossupload.File, error) {
	path, err := pathArgument(request)
	if err != nil {
		return ossupload.File{}, err
	}
	return ossupload.FileFromPath(path)
}

// handleUploadFile handles the upload_file tool call
func (h *UploadHandler) handleUploadFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := h.fileArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.uploader.Upload(ctx, file)
	if err != nil {
		h.logger.Error("upload tool failed", "path", file.Path, "err", err)
		msg := ossupload.ErrorMessage(err)
		if msg == "" {
			msg = err.Error()
		}
		return mcp.NewToolResultError(fmt.Sprintf("upload failed: %s", msg)), nil
	}

	return mcp.NewToolResultText(result.URL), nil
}

// handleSignUpload handles the sign_upload tool call
func (h *UploadHandler) handleSignUpload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := h.fileArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req, err := h.uploader.Sign(ctx, file)
	if err != nil {
		h.logger.Error("sign tool failed", "path", file.Path, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("sign failed: %s", err)), nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"url":       req.URL,
		"key":       req.Key,
		"fieldName": req.FieldName,
		"formData":  req.FormData,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleObjectKey handles the object_key tool call
func (h *UploadHandler) handleObjectKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := h.fileArgument(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	key := objectkey.NewHashGenerator(h.keyPrefix).GenerateKey(objectkey.FileInfo{
		Name: file.Name,
		Path: file.Path,
		Size: file.Size,
		Type: file.Type,
	})
	return mcp.NewToolResultText(key), nil
}
