package client

import (
	"context"

	"github.com/xxxsen/famlearn/internal/model"
)

func (c *Client) AnalyzeImage(ctx context.Context, encoded string) (*model.ImageAnalysis, error) {
	out := &model.ImageAnalysis{}
	if err := c.postJSON(ctx, "/api/analyze-image", map[string]string{"base64Image": encoded}, out); err != nil {
		return nil, err
	}
	return out, nil
}

type savedScan struct {
	ID        string `json:"id"`
	MDPath    string `json:"mdPath"`
	ImagePath string `json:"imagePath"`
	ImageURL  string `json:"imageUrl"`
}

// SaveScannedItem persists item and fills in the id and image location the
// server assigned.
func (c *Client) SaveScannedItem(ctx context.Context, item *model.ScannedItem, encodedImage string) error {
	var out savedScan
	err := c.postJSON(ctx, "/api/save-scanned-item", map[string]interface{}{
		"scannedItem":         item,
		"originalImageBase64": encodedImage,
	}, &out)
	if err != nil {
		return err
	}
	if out.ID != "" {
		item.ID = out.ID
	}
	item.ImagePath = out.ImagePath
	item.ImageURL = out.ImageURL
	item.Status = model.ProcessingCompleted
	return nil
}

type LoginResponse struct {
	SessionID string     `json:"sessionId"`
	Token     string     `json:"token"`
	Role      model.Role `json:"role"`
	UserID    string     `json:"userId"`
	ExpiresAt int64      `json:"expiresAt"`
}

// Login exchanges a PIN for a session and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, pin string) (*LoginResponse, error) {
	out := &LoginResponse{}
	if err := c.postJSON(ctx, "/api/auth/login", map[string]string{"pin": pin}, out); err != nil {
		return nil, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	err := c.postJSON(ctx, "/api/auth/logout", map[string]string{"token": c.token}, nil)
	c.SetToken("")
	return err
}
