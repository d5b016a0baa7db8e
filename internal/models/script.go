package models

// Playbook is a configuration-management playbook on disk.
type Playbook struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// Job is a batch job script on disk.
type Job struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Owner    string `json:"owner"`
}

// ScriptContent is a playbook or job with its description split off.
type ScriptContent struct {
	Filename    string `json:"filename"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// SaveScriptRequest creates or updates a playbook or job. OriginalFilename is set on update.
type SaveScriptRequest struct {
	OriginalFilename string `json:"original_filename"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Content          string `json:"content"`
	TargetUser       string `json:"target_user"`
}

// SavedScript is returned after a save, update or delete.
type SavedScript struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
}

// ExecutePlaybookRequest runs a playbook against an inventory target.
type ExecutePlaybookRequest struct {
	Hosts    string `json:"hosts" binding:"required"`
	Playbook string `json:"playbook" binding:"required"`
}

// AppSelection identifies a catalog application whose setup should be injected into a job.
type AppSelection struct {
	ID string `json:"id" binding:"required"`
}

// SubmitJobRequest submits a job script to the batch scheduler.
type SubmitJobRequest struct {
	Job          string         `json:"job" binding:"required"`
	Hosts        string         `json:"hosts" binding:"required"`
	Application  *AppSelection  `json:"application"`
	Applications []AppSelection `json:"applications"`
}

// ExecutionResult is the interpreted outcome of an external command.
type ExecutionResult struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	ReturnCode int    `json:"return_code"`
	Username   string `json:"username,omitempty"`
	JobID      string `json:"job_id,omitempty"`
}
