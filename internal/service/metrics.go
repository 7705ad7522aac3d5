package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	usersRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "picshare_users_registered_total",
		Help: "Number of successful registrations.",
	})
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "picshare_logins_total",
		Help: "Login attempts by result.",
	}, []string{"result"})
	imagesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "picshare_images_uploaded_total",
		Help: "Number of images stored.",
	})
	imagesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "picshare_images_deleted_total",
		Help: "Number of images removed, by path (request or reconciler).",
	}, []string{"path"})
	mediaFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "picshare_media_failures_total",
		Help: "Media store failures by operation.",
	}, []string{"operation"})
)
