package sync

import "context"

// Decrypter turns a transport payload back into clipboard text.
type Decrypter interface {
	Decrypt(payload string) (string, error)
}

// ClipboardSender delivers a payload to the configured peer.
type ClipboardSender interface {
	SendClipboard(ctx context.Context, payload string) error
}

// ClipboardApplier writes text received from the peer to the local
// clipboard, suppressing the echo of that write.
type ClipboardApplier interface {
	SetClipboardExternal(content string) error
}
