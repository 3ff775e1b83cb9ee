package service_test

import (
	"github.com/GTDGit/gtd_auth/internal/service/servicetest"
)

const strongPassword = servicetest.StrongPassword

var meta = servicetest.Meta
