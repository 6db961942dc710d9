package tgclient

import (
	"fmt"

	"github.com/gotd/td/tg"

	"tgstream/internal/model"
)

func inputPeer(p model.Peer) (tg.InputPeerClass, error) {
	switch p.Kind {
	case model.PeerUser:
		return &tg.InputPeerUser{UserID: p.ID, AccessHash: p.AccessHash}, nil
	case model.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ID}, nil
	case model.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: p.ID, AccessHash: p.AccessHash}, nil
	}
	return nil, fmt.Errorf("unknown peer kind %d", p.Kind)
}

// inputLocation переводит адрес файла в форму запроса upload.getFile.
func inputLocation(loc model.Location) (tg.InputFileLocationClass, error) {
	switch l := loc.(type) {
	case model.DocumentLocation:
		return &tg.InputDocumentFileLocation{
			ID:            l.ID,
			AccessHash:    l.AccessHash,
			FileReference: l.FileReference,
			ThumbSize:     l.ThumbSize,
		}, nil
	case model.PhotoLocation:
		return &tg.InputPhotoFileLocation{
			ID:            l.ID,
			AccessHash:    l.AccessHash,
			FileReference: l.FileReference,
			ThumbSize:     l.ThumbSize,
		}, nil
	case model.PeerPhotoLocation:
		peer, err := inputPeer(l.Peer)
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerPhotoFileLocation{
			Big:     l.Big,
			Peer:    peer,
			PhotoID: l.PhotoID,
		}, nil
	}
	return nil, fmt.Errorf("unsupported location %T", loc)
}
