package handler

import (
	"pairchat/internal/app/imagestore"
	"pairchat/internal/app/message"
	"pairchat/internal/app/realtime"
	"pairchat/internal/app/store"
	"pairchat/internal/configs"
)

// AppDeps bundles the collaborators the HTTP handlers need.
type AppDeps struct {
	Config   *configs.AppConfig
	Channel  *realtime.Channel
	Messages *message.Service
	Users    store.UserStore
	Images   imagestore.Store
}
