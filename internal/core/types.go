package core

import "labcore/pkg/domain"

type (
	EntityType           = domain.EntityType
	ProcessingStage      = domain.ProcessingStage
	ResultStatus         = domain.ResultStatus
	PluginType           = domain.PluginType
	Base                 = domain.Base
	Subject              = domain.Subject
	Experiment           = domain.Experiment
	VideoFile            = domain.VideoFile
	Colony               = domain.Colony
	Lab                  = domain.Lab
	LabProject           = domain.LabProject
	Worker               = domain.Worker
	ScanTarget           = domain.ScanTarget
	User                 = domain.User
	PluginDescriptor     = domain.PluginDescriptor
	AnalysisResult       = domain.AnalysisResult
	ResultKey            = domain.ResultKey
	LabMember            = domain.LabMember
	WorkerAttachment     = domain.WorkerAttachment
	ScanTargetAttachment = domain.ScanTargetAttachment
	Change               = domain.Change
	Action               = domain.Action
	SortOption           = domain.SortOption
	SortOrder            = domain.SortOrder
)

const (
	EntitySubject              = domain.EntitySubject
	EntityExperiment           = domain.EntityExperiment
	EntityVideoFile            = domain.EntityVideoFile
	EntityColony               = domain.EntityColony
	EntityLab                  = domain.EntityLab
	EntityWorker               = domain.EntityWorker
	EntityScanTarget           = domain.EntityScanTarget
	EntityUser                 = domain.EntityUser
	EntityPluginDescriptor     = domain.EntityPluginDescriptor
	EntityAnalysisResult       = domain.EntityAnalysisResult
	EntityLabMember            = domain.EntityLabMember
	EntityWorkerAttachment     = domain.EntityWorkerAttachment
	EntityScanTargetAttachment = domain.EntityScanTargetAttachment
)

const (
	StageRecorded = domain.StageRecorded
	StageTracked  = domain.StageTracked
	StageAnalyzed = domain.StageAnalyzed
	StageArchived = domain.StageArchived
)

const (
	StatusSuccess = domain.StatusSuccess
	StatusFailed  = domain.StatusFailed
	StatusRunning = domain.StatusRunning
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

const (
	SortAsc  = domain.SortAsc
	SortDesc = domain.SortDesc
)
