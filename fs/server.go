package fs

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"

	"github.com/prologic/simbridgefs/config"
)

type Server struct {
	*fuse.Server
	mountPoint string
}

// 200ms is enough for an operation to complete
var cacheDuration = 200 * time.Millisecond

// Mount mounts the settings and document tree at mountPoint.
func Mount(mountPoint string, settings Settings, docs Documents) (*Server, error) {
	opts := &fs.Options{
		AttrTimeout:  &cacheDuration,
		EntryTimeout: &cacheDuration,
		MountOptions: fuse.MountOptions{
			Options: config.MountOptions,
			Debug:   config.Verbose && config.FuseDebug,
			FsName:  "simbridgefs",
		},
	}
	server, err := fs.Mount(mountPoint, NewRoot(settings, docs), opts)
	if err != nil {
		return nil, err
	}
	return &Server{
		Server:     server,
		mountPoint: mountPoint,
	}, nil
}

func MustMount(mountPoint string, settings Settings, docs Documents) *Server {
	server, err := Mount(mountPoint, settings, docs)
	if err != nil {
		log.WithError(err).Fatal("Failed to mount")
		return nil
	}
	return server
}

func (s *Server) ListenForUnmount() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	sig := <-c
	log.Infof("Got %s signal, unmounting %q...", sig, s.mountPoint)
	err := s.Unmount()
	if err != nil {
		log.WithError(err).Errorf("Failed to unmount, try %q manually.", "umount "+s.mountPoint)
	}
	<-c // Double ctrl+c
	log.Warn("Force exiting...")
	os.Exit(1)
}
